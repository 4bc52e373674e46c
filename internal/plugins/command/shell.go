package commandplugin

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

const scriptPlaceholder = "{0}"

// Shell describes how a script file is handed to an interpreter.
type Shell struct {
	Name string
	// Args is the command line; scriptPlaceholder marks the script path.
	Args []string
	// Ext is the extension the script file needs for the interpreter to accept it.
	Ext string
}

var builtinShells = map[string]Shell{
	"bash":       {Name: "bash", Args: []string{"bash", "--noprofile", "--norc", "-eo", "pipefail", scriptPlaceholder}, Ext: ".sh"},
	"sh":         {Name: "sh", Args: []string{"sh", "-e", scriptPlaceholder}, Ext: ".sh"},
	"pwsh":       {Name: "pwsh", Args: []string{"pwsh", "-command", ". '" + scriptPlaceholder + "'"}, Ext: ".ps1"},
	"powershell": {Name: "powershell", Args: []string{"powershell", "-command", ". '" + scriptPlaceholder + "'"}, Ext: ".ps1"},
	"python":     {Name: "python", Args: []string{"python", scriptPlaceholder}, Ext: ".py"},
	"cmd":        {Name: "cmd", Args: []string{"cmd", "/D", "/E:ON", "/V:OFF", "/S", "/C", `CALL "` + scriptPlaceholder + `"`}, Ext: ".cmd"},
}

// ResolveShell maps a step's shell to its command line. Besides the builtin
// names, any template containing {0} is accepted, e.g. "perl {0}". An empty
// name picks the platform default.
func ResolveShell(name string) (Shell, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return defaultShell(), nil
	}
	if sh, ok := builtinShells[name]; ok {
		return sh, nil
	}
	if strings.Contains(name, scriptPlaceholder) {
		args := strings.Fields(name)
		return Shell{Name: args[0], Args: args}, nil
	}
	return Shell{}, fmt.Errorf("unsupported shell %q: use one of bash, sh, pwsh, powershell, python, cmd or a template containing {0}", name)
}

func defaultShell() Shell {
	if runtime.GOOS == "windows" {
		return builtinShells["pwsh"]
	}
	if _, err := exec.LookPath("bash"); err == nil {
		return builtinShells["bash"]
	}
	return builtinShells["sh"]
}

// Command returns the argv that runs script.
func (s Shell) Command(script string) []string {
	argv := make([]string, len(s.Args))
	for i, arg := range s.Args {
		argv[i] = strings.ReplaceAll(arg, scriptPlaceholder, script)
	}
	return argv
}
