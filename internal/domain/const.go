package domain

type ctxKey string

const (
	RequesterIdCtxKey ctxKey = "cc-requesterId"
	RequestIdCtxKey   ctxKey = "cc-requestId"
)

const (
	RequesterIdHeader = "cc-requester-ccid"
	RequestIdHeader   = "x-request-id"
)
