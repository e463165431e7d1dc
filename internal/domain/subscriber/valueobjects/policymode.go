package valueobjects

// PolicyMode decides which identities may register.
type PolicyMode string

const (
	// PolicyTable admits identities present and active in the subscriber table.
	PolicyTable PolicyMode = "table"
	// PolicyPattern admits identities matching one of the accept patterns.
	PolicyPattern PolicyMode = "pattern"
	// PolicyUnconfigured rejects everything until configuration is fixed.
	PolicyUnconfigured PolicyMode = "unconfigured"
)

func (p PolicyMode) String() string {
	return string(p)
}

func (p PolicyMode) IsTable() bool {
	return p == PolicyTable
}

func (p PolicyMode) IsPattern() bool {
	return p == PolicyPattern
}
