package luna

// Validate reports whether number is a digit string whose last digit is a
// valid Luhn check digit.
func Validate(number string) bool {
	if number == "" {
		return false
	}
	sum := 0
	alternate := false
	for i := len(number) - 1; i >= 0; i-- {
		ch := number[i]
		if ch < '0' || ch > '9' {
			return false
		}
		d := int(ch - '0')
		if alternate {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alternate = !alternate
	}
	return sum%10 == 0
}

// CheckDigit returns the Luhn digit that makes payload+digit valid.
// payload must consist of ASCII digits only.
func CheckDigit(payload string) byte {
	sum := 0
	alternate := true
	for i := len(payload) - 1; i >= 0; i-- {
		d := int(payload[i] - '0')
		if alternate {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alternate = !alternate
	}
	return byte('0' + (10-sum%10)%10)
}
