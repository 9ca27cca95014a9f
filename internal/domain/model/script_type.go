package model

type ScriptType string

const (
	ScriptTypeBash       ScriptType = "bash"
	ScriptTypePowerShell ScriptType = "powershell"
	ScriptTypeBatch      ScriptType = "batch"
)

var ScriptTypes = []ScriptType{ScriptTypeBash, ScriptTypePowerShell, ScriptTypeBatch}

func (t ScriptType) Valid() bool {
	for _, st := range ScriptTypes {
		if st == t {
			return true
		}
	}
	return false
}

// Extension is the file suffix the interpreter expects for a script artifact.
func (t ScriptType) Extension() string {
	switch t {
	case ScriptTypePowerShell:
		return ".ps1"
	case ScriptTypeBatch:
		return ".bat"
	default:
		return ".sh"
	}
}
