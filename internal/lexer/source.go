package lexer

import "os"

// readFile loads a source file's contents as a string for AddSource;
// in-memory sources skip it by going through AddString.
func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
