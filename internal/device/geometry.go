package device

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var digits = regexp.MustCompile(`\d+`)

// ParseScreenSize reads "wm size" output. When an override is active it is
// printed last, so the last non-empty line wins, e.g.
//
//	Physical size: 1080x2400
//	Override size: 720x1600
func ParseScreenSize(output string) (width, height int, err error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])

	nums := digits.FindAllString(last, 2)
	if len(nums) < 2 {
		return 0, 0, fmt.Errorf("failed to parse window size: %q", output)
	}

	width, _ = strconv.Atoi(nums[0])
	height, _ = strconv.Atoi(nums[1])
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid window size %dx%d", width, height)
	}
	return width, height, nil
}

// NextProfileButton returns the tap target of the "next profile" button,
// anchored to the bottom-right corner of the screen
func NextProfileButton(width, height, offsetX, offsetY int) (x, y int) {
	return width - offsetX, height - offsetY
}
