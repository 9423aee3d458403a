package models

type Study struct {
	Id                 string
	Accession          string
	Name               string
	BucketId           string
	UserId             string
	UserEmail          string
	QueuedForDeletion  bool
	NbShares           int
	FirecloudProject   string
	FirecloudWorkspace string
}

func (s Study) HasShares() bool {
	return s.NbShares > 0
}
