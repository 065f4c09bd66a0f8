package common

func GetIntegerwithDefault(value, defaul int) int {
	if value == 0 {
		return defaul
	}
	return value
}

func GetInt64withDefault(value, defaul int64) int64 {
	if value == 0 {
		return defaul
	}
	return value
}

func GetStringwithDefault(value, defaul string) string {
	if value == "" {
		return defaul
	}
	return value
}

func ArrayDistinct(arr []string) []string {
	set := make(map[string]struct{}, len(arr))
	var out []string
	for _, v := range arr {
		if v == "" {
			continue
		}
		if _, ok := set[v]; !ok {
			set[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func ArrayContains(arr []string, s string) bool {
	for _, v := range arr {
		if v == s {
			return true
		}
	}
	return false
}
