package goose

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"
)

// Create writes a new blank migration file and its test.
func Create(dir, name string, noTx bool) error {
	paths, err := CreateMigration(name, dir, noTx, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Created migration files at %v\n", paths)

	return nil
}

func writeTemplateToFile(path string, t *template.Template, data any) (string, error) {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to create file %v: already exists", path)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := t.Execute(f, data); err != nil {
		return "", err
	}

	return filepath.Abs(path)
}
