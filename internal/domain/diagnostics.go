package domain

// AssetCheck reports reachability of one engine asset role.
type AssetCheck struct {
	Role      AssetRole `json:"role"`
	Source    string    `json:"source"`
	Reachable bool      `json:"reachable"`
	Detail    string    `json:"detail,omitempty"`
}

// DiagnosticReport summarizes preflight checks across all asset roles.
type DiagnosticReport struct {
	Assets []AssetCheck `json:"assets"`
	Ready  bool         `json:"ready"`
}
