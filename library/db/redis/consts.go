package redis

const (
	keyPrefix        = "campus_portal/"
	keyPrefixStorage = keyPrefix + "storage/"

	// KeyPrefixCleanupLock is the key prefix for per-disk sweep locks
	KeyPrefixCleanupLock = keyPrefixStorage + "cleanup_lock/"
	// KeyPrefixCleanupReport is the key prefix for the last sweep report of each disk
	KeyPrefixCleanupReport = keyPrefixStorage + "cleanup_report/"
)
