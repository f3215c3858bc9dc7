package importstate

const (
	stateFlag    = "state"
	objectsFlag  = "objects"
	packagesFlag = "packages"
	outputFlag   = "output"
)

var (
	params = &importParams{}
)

type importParams struct {
	statePath    string
	objectsPath  string
	packagesPath string
	output       string
}

func (p *importParams) getRequiredFlags() []string {
	return []string{
		stateFlag,
	}
}
