package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Extension is the suffix of journal files.
const Extension = ".journal"

// FileName returns the name of journal file number n.
func FileName(n int64) string {
	return fmt.Sprintf("%019d%s", n, Extension)
}

// ParseFileName extracts the number from a journal file name.
func ParseFileName(name string) (int64, bool) {
	base, ok := strings.CutSuffix(name, Extension)
	if !ok || len(base) != 19 {
		return 0, false
	}
	n, err := strconv.ParseInt(base, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ListFiles returns the numbers of the journal files in dir, ascending.
func ListFiles(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var numbers []int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if n, ok := ParseFileName(e.Name()); ok {
			numbers = append(numbers, n)
		}
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers, nil
}

// FilePath joins dir and the name of journal file n.
func FilePath(dir string, n int64) string {
	return filepath.Join(dir, FileName(n))
}

// FileInfo describes a journal file the writer knows about.
type FileInfo struct {
	Number           int64
	Size             int64
	FirstTransaction uint64
	LastTransaction  uint64
}

// Empty reports whether the file holds no records.
func (f FileInfo) Empty() bool {
	return f.LastTransaction == 0
}
