package repositories

// StudyDbRepository holds the queries on the portal database. It is stateless: every method takes the executor
// or the transaction it runs on.
type StudyDbRepository struct{}

func NewStudyDbRepository() *StudyDbRepository {
	return &StudyDbRepository{}
}
