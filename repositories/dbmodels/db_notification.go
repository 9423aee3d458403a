package dbmodels

const TABLE_NOTIFICATIONS = "notifications"
