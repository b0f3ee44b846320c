package validation

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"crunchcli/internal/errors"
)

// FileValidator checks the directories and files a batch is pointed at.
// Failures are returned as typed errors so that the HTTP layer can map them
// to status codes.
type FileValidator struct {
	logger *slog.Logger
	root   string
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger}
}

// WithRoot returns a validator whose Resolve confines paths to root. An empty
// root leaves paths unrestricted.
func (v *FileValidator) WithRoot(root string) *FileValidator {
	clone := *v
	clone.root = root
	return &clone
}

// Resolve maps a client supplied path into the data root. Relative paths are
// taken from the root; absolute ones must lie inside it once symlinks are
// followed. Empty paths stay empty.
func (v *FileValidator) Resolve(path string) (string, error) {
	if path == "" || v.root == "" {
		return path, nil
	}

	root, err := filepath.Abs(v.root)
	if err != nil {
		return "", errors.NewConfigError("invalid data root", err).WithContext("root", v.root)
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(realPath(root), realPath(target))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		v.logger.Warn("Path outside data root",
			slog.String("path", path),
			slog.String("root", root))
		return "", errors.NewAppValidationError("path is outside the data root").WithContext("path", path)
	}
	return target, nil
}

// realPath follows symlinks in the longest existing prefix of path.
func realPath(path string) string {
	missing := ""
	for dir := path; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, missing)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return path
		}
		missing = filepath.Join(filepath.Base(dir), missing)
	}
}

// ValidateInputDirectory checks that dir exists and is a directory.
func (v *FileValidator) ValidateInputDirectory(dir string) error {
	if dir == "" {
		return errors.NewAppValidationError("input directory is required")
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		v.logger.Error("Input directory does not exist", slog.String("directory", dir))
		return errors.NewNotFoundError("input directory").WithContext("directory", dir)
	}
	if err != nil {
		v.logger.Error("Failed to stat input directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return errors.NewStorageError("failed to stat input directory", err).WithContext("directory", dir)
	}
	if !info.IsDir() {
		v.logger.Error("Input path is not a directory", slog.String("path", dir))
		return errors.NewAppValidationError("input path is not a directory").WithContext("directory", dir)
	}
	return nil
}

// ValidateOutputDirectory ensures dir exists, creating it if needed, and is
// writable.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return errors.NewStorageError("failed to create output directory", err).WithContext("directory", dir)
	}

	tmp, err := os.CreateTemp(dir, ".write_test_*")
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return errors.NewStorageError("output directory is not writable", err).WithContext("directory", dir)
	}
	tmp.Close()
	os.Remove(tmp.Name())
	return nil
}

// ValidateFile checks that path is an existing, readable regular file.
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist", slog.String("file", path))
		return errors.NewNotFoundError("file").WithContext("file", path)
	}
	if err != nil {
		return errors.NewStorageError("failed to stat file", err).WithContext("file", path)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file", slog.String("path", path))
		return errors.NewAppValidationError("path is a directory, not a file").WithContext("file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("File is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return errors.NewStorageError("file is not readable", err).WithContext("file", path)
	}
	file.Close()

	v.logger.Debug("File validated",
		slog.String("file", filepath.Base(path)),
		slog.Int64("size", info.Size()))
	return nil
}
