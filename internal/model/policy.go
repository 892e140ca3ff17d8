package model

// Policy is a versioned legal document such as the terms of service.
// At most one policy per Type is active.
type Policy struct {
	ID       int64
	Type     string
	Content  string
	Version  string
	IsActive bool
	Timestamps
}
