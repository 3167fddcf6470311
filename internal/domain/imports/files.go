package imports

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	processingSuffix = ".processing"
	errorSuffix      = ".error"
)

// claimNextFile toma el primer fichero pendiente del directorio que cumpla
// el patrón y lo renombra con sufijo .processing. El rename es el claim: un
// fichero a medio procesar tras un crash no vuelve a ser candidato hasta que
// alguien lo renombre de vuelta. Devuelve "" si no hay ficheros pendientes.
func claimNextFile(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", fmt.Errorf("listing %s in %s: %w", pattern, dir, err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	path := matches[0]

	claimed := path + processingSuffix
	if _, err := os.Stat(claimed); err == nil {
		if err := os.Remove(claimed); err != nil {
			return "", fmt.Errorf("deleting previous file %s: %w", claimed, err)
		}
	}
	if err := os.Rename(path, claimed); err != nil {
		return "", fmt.Errorf("renaming %s to %s: %w", path, claimed, err)
	}
	return claimed, nil
}

// finishFile retira el fichero procesado con éxito.
func finishFile(path string) error {
	return os.Remove(path)
}

// failFile renombra el fichero a .error para que no vuelva a procesarse.
func failFile(path string) error {
	return os.Rename(path, strings.TrimSuffix(path, processingSuffix)+errorSuffix)
}
