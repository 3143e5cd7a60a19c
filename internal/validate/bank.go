package validate

// RoutingValid checks a 9-digit ABA routing number: digits weighted 3, 7, 1
// per triplet must sum to a non-zero multiple of ten.
func RoutingValid(routing string) bool {
	if len(routing) != 9 || !IsDigits(routing) {
		return false
	}
	weights := [3]int{3, 7, 1}
	sum := 0
	for i := 0; i < 9; i++ {
		sum += int(routing[i]-'0') * weights[i%3]
	}
	return sum > 0 && sum%10 == 0
}

// AccountNumberValid reports whether s is a non-empty digit string.
func AccountNumberValid(s string) bool { return IsDigits(s) }
