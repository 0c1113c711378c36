package consts

const (
	TokenRevokedKey = "token:revoked:"
)

const (
	ArchiveJobLock = "lock:message:archive"
)
