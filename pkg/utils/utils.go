// Package utils 通用小工具，不依赖 internal
package utils

import "math"

// CoalesceString 返回第一个非空字符串
func CoalesceString(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// Round 四舍五入到 places 位小数；NaN/Inf 原样返回
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// Round4 契约中概率、delta、权重统一保留 4 位
func Round4(v float64) float64 {
	return Round(v, 4)
}
