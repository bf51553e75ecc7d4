package tally

// Count 统计满足 pred 的元素个数
func Count[T any](seq []T, pred func(T) bool) int {
	cnt := 0
	for _, v := range seq {
		if pred(v) {
			cnt++
		}
	}
	return cnt
}

// 只有动态类型恰好为 string 的元素才计数，具名的字符串类型不算
func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s == ""
}

// CountStrings 统计序列中字符串元素的个数
func CountStrings(seq []any) int {
	return Count(seq, isString)
}

// CountEmptyStrings 统计序列中空字符串的个数，nil 不会被当作空字符串
func CountEmptyStrings(seq []any) int {
	return Count(seq, isEmptyString)
}

type Tally struct {
	Total        int `json:"total" msgpack:"total"`
	Strings      int `json:"strings" msgpack:"strings"`
	EmptyStrings int `json:"empty_strings" msgpack:"empty_strings"`
}

// TallyOf 一次遍历得到全部计数
func TallyOf(seq []any) Tally {
	t := Tally{Total: len(seq)}
	for _, v := range seq {
		if s, ok := v.(string); ok {
			t.Strings++
			if s == "" {
				t.EmptyStrings++
			}
		}
	}
	return t
}
