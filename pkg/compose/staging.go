package compose

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/TheTarry/ha-harness/pkg/config"
)

// stageHAConfig builds a disposable copy of the Home Assistant configuration
// directory with the persistent entities package wired in. The original
// directory is never modified. Returns the staged root.
func stageHAConfig(haConfigRoot, entitiesPath string) (string, error) {
	if _, err := config.LoadPersistentEntities(entitiesPath); err != nil {
		return "", err
	}

	stagingDir, err := os.MkdirTemp("", "ha_harness_config_")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	ok := false
	defer func() {
		if !ok {
			os.RemoveAll(stagingDir)
		}
	}()

	if err := copyTree(haConfigRoot, stagingDir); err != nil {
		return "", fmt.Errorf("failed to stage Home Assistant configuration: %w", err)
	}

	// The entities file gets a unique name so it cannot collide with
	// anything already in the user's config directory.
	entitiesFilename := fmt.Sprintf("_harness_persistent_entities_%s.yaml", uuid.NewString())
	if err := copyFile(entitiesPath, filepath.Join(stagingDir, entitiesFilename)); err != nil {
		return "", fmt.Errorf("failed to stage persistent entities file: %w", err)
	}

	configFile := filepath.Join(stagingDir, "configuration.yaml")
	doc, err := os.ReadFile(configFile)
	if err != nil {
		return "", fmt.Errorf("failed to read staged configuration.yaml: %w", err)
	}
	patched, err := config.PatchConfiguration(doc, entitiesFilename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(configFile, patched, 0o644); err != nil {
		return "", fmt.Errorf("failed to write staged configuration.yaml: %w", err)
	}

	ok = true
	return stagingDir, nil
}

// copyTree copies src into dst, skipping runtime state directories that must
// not leak between runs.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && (d.Name() == ".storage" || d.Name() == "__pycache__") && path != src {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			if path == src {
				return nil
			}
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
