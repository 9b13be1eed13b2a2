package recast

// Mode decides whether dispatch reaches the upstream write API. It is fixed
// at startup: Live when a signing credential is available, DryRun otherwise.
type Mode struct {
	recaster Recaster
}

// Live dispatches through r, which carries the operator credential.
func Live(r Recaster) Mode {
	return Mode{recaster: r}
}

// DryRun runs eligibility and quota logic but never calls the write API.
func DryRun() Mode {
	return Mode{}
}

// IsLive reports whether recasts are actually sent.
func (m Mode) IsLive() bool {
	return m.recaster != nil
}

func (m Mode) String() string {
	if m.IsLive() {
		return "live"
	}
	return "dry_run"
}
