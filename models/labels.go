package models

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// ErrLabelFile is returned when a label file cannot be read or holds too few labels.
var ErrLabelFile = errors.New("invalid label file")

// LoadLabels reads one class name per line.
//
// Arguments:
//   - path: The label file. An empty path or "coco" selects COCOLabels.
//   - n: The number of classes the model predicts.
//
// Returns:
//   - []string: Exactly n labels; lines past the n-th are ignored.
//   - error: ErrLabelFile (wrapped) if the file is unreadable or has fewer than n lines.
func LoadLabels(path string, n int) ([]string, error) {
	if path == "" || path == "coco" {
		if n != len(COCOLabels) {
			return nil, errors.Wrapf(ErrLabelFile, "built-in COCO labels hold %d classes, need %d", len(COCOLabels), n)
		}
		return append([]string(nil), COCOLabels...), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(ErrLabelFile, "open %s: %v", path, err)
	}
	defer f.Close()

	labels := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	for len(labels) < n && scanner.Scan() {
		labels = append(labels, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(ErrLabelFile, "read %s: %v", path, err)
	}
	if len(labels) < n {
		return nil, errors.Wrapf(ErrLabelFile, "%s has %d labels, need %d", path, len(labels), n)
	}

	return labels, nil
}
