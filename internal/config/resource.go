package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MaxUserMacros is the number of $USERn$ slots.
const MaxUserMacros = 256

// ReadResourceFile loads "$USERn$=value" lines into macros. Values are
// kept out of the objects document so that secrets live elsewhere.
func ReadResourceFile(path string, macros *[MaxUserMacros]string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "cannot open resource file %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 || !strings.HasPrefix(line, "$USER") {
			continue
		}
		name := line[:eq]
		if !strings.HasSuffix(name, "$") {
			continue
		}
		num, err := strconv.Atoi(name[5 : len(name)-1])
		if err != nil || num < 1 || num > MaxUserMacros {
			return errors.Errorf("%s:%d: invalid USER macro %s", path, lineNum, name)
		}
		macros[num-1] = line[eq+1:]
	}
	return errors.Wrapf(scanner.Err(), "reading %s", path)
}
