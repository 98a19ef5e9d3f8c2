package mirror

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/galaxyproject/depotsync/module/mirror/types"
	"github.com/galaxyproject/depotsync/util/common/errors"
)

// DefaultImageTemplate reproduces the one-line-per-image build script: build,
// push, remove, report.
const DefaultImageTemplate = "singularity build ${img} ${locator} > /dev/null 2>&1 && " +
	"rsync -azq -e 'ssh -i ssh_key -o StrictHostKeyChecking=no' ./${img} ${target} && " +
	"rm ${img} && echo 'Container ${img} built (${idx}/${total}).'\n"

// ScriptVars are the values available to an image template besides ${idx} and ${total}.
type ScriptVars struct {
	// Target is substituted for ${target}.
	Target string
}

// WriteBuildScript renders tmpl once per work item. ${img}, ${locator},
// ${idx} (1-based), ${total} and ${target} are substituted; any other
// variable is left for the shell as ${VAR}. $$ writes a literal $.
func WriteBuildScript(w io.Writer, work []*types.WorkItem, tmpl string, vars ScriptVars) error {
	if tmpl == "" {
		tmpl = DefaultImageTemplate
	}
	if !strings.HasSuffix(tmpl, "\n") {
		tmpl += "\n"
	}
	bw := bufio.NewWriter(w)
	total := strconv.Itoa(len(work))
	for i, item := range work {
		values := map[string]string{
			"img":     item.Name(),
			"locator": item.Ref.SourceLocator(),
			"idx":     strconv.Itoa(i + 1),
			"total":   total,
			"target":  vars.Target,
		}
		line := expand(tmpl, values)
		if _, err := bw.WriteString(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func expand(tmpl string, values map[string]string) string {
	parts := strings.Split(tmpl, "$$")
	for i, part := range parts {
		parts[i] = os.Expand(part, func(key string) string {
			if v, ok := values[key]; ok {
				return v
			}
			return "${" + key + "}"
		})
	}
	return strings.Join(parts, "$")
}

// WriteBuildScriptFile appends the script lines to path, so a preamble already
// in the file is kept. A missing file is created executable.
func WriteBuildScriptFile(path string, work []*types.WorkItem, tmpl string, vars ScriptVars) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o755)
	if err != nil {
		return errors.NewFileError(path, "open", err)
	}
	if err := WriteBuildScript(f, work, tmpl, vars); err != nil {
		f.Close()
		return errors.NewFileError(path, "write", err)
	}
	if err := f.Close(); err != nil {
		return errors.NewFileError(path, "close", err)
	}
	return nil
}
