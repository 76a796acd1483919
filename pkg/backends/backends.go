package backends

import "github.com/capstan/capstan/pkg/interfaces"

// Interface conformance
var (
	_ interfaces.Workspace      = (*ManifestWorkspace)(nil)
	_ interfaces.VCS            = (*GitVCS)(nil)
	_ interfaces.Registry       = (*HTTPRegistry)(nil)
	_ interfaces.Publisher      = (*CommandPublisher)(nil)
	_ interfaces.VersionPlanner = (*StaticPlanner)(nil)
)
