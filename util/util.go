package util

import (
	"io/fs"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// GatherAllMidiPaths returns every .mid/.midi file under path. A path that
// is itself a file is returned as is. maxNum of 0 means no limit.
func GatherAllMidiPaths(path string, maxNum int) ([]string, error) {
	var res []string
	walk := func(s string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		lower := strings.ToLower(s)
		if strings.HasSuffix(lower, ".mid") || strings.HasSuffix(lower, ".midi") {
			if maxNum == 0 || len(res) < maxNum {
				res = append(res, s)
			}
		}
		return nil
	}
	if err := filepath.WalkDir(path, walk); err != nil {
		return nil, err
	}
	return res, nil
}

func GetKeys[A constraints.Ordered, B any](m map[A]B) []A {
	keys := make([]A, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func SortedKeys[A constraints.Ordered, B any](m map[A]B) []A {
	keys := GetKeys(m)
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	return keys
}

func Min[A Number](nums []A) A {
	var res A
	for i, v := range nums {
		if i == 0 || v < res {
			res = v
		}
	}
	return res
}

func Max[A Number](nums []A) A {
	var res A
	for i, v := range nums {
		if i == 0 || v > res {
			res = v
		}
	}
	return res
}

func Sum[A Number](nums []A) float64 {
	var total float64
	for _, v := range nums {
		total += float64(v)
	}
	return total
}

// Mean is 0 for an empty slice.
func Mean[A Number](nums []A) float64 {
	if len(nums) == 0 {
		return 0
	}
	return Sum(nums) / float64(len(nums))
}

// PopulationStdDev divides by n, not n-1.
func PopulationStdDev[A Number](nums []A, mean float64) float64 {
	if len(nums) == 0 {
		return 0
	}
	var squares float64
	for _, v := range nums {
		d := float64(v) - mean
		squares += d * d
	}
	return math.Sqrt(squares / float64(len(nums)))
}
