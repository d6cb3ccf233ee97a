package storytools

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedList 编号列表缺号、乱序或数量不符
var ErrMalformedList = errors.New("malformed numbered list")

var numberedLine = regexp.MustCompile(`^\s*(\d+)\s*:\s*(.*)$`)

// ParseNumberedList 解析 "1: ..." "2: ..." 形式的文本，按编号返回每段内容
// 编号必须从 1 开始逐一递增；第一个编号行之前的内容忽略，之后的非编号行并入上一段
// want > 0 时段数必须等于 want
func ParseNumberedList(text string, want int) ([]string, error) {
	var segments []string
	var current *strings.Builder
	next := 1

	flush := func() {
		if current != nil {
			segments = append(segments, strings.TrimSpace(current.String()))
		}
	}

	for lineNo, line := range strings.Split(text, "\n") {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			if current != nil && strings.TrimSpace(line) != "" {
				current.WriteString(" ")
				current.WriteString(strings.TrimSpace(line))
			}
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedList, lineNo+1, err)
		}
		if n != next {
			return nil, fmt.Errorf("%w: line %d has index %d, expected %d", ErrMalformedList, lineNo+1, n, next)
		}
		next++
		flush()
		current = &strings.Builder{}
		current.WriteString(strings.TrimSpace(m[2]))
	}
	flush()

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no numbered lines", ErrMalformedList)
	}
	if want > 0 && len(segments) != want {
		return nil, fmt.Errorf("%w: got %d entries, expected %d", ErrMalformedList, len(segments), want)
	}
	for i, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("%w: entry %d is empty", ErrMalformedList, i+1)
		}
	}
	return segments, nil
}
