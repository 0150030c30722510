package main

import (
	"math"
	"strconv"
)

// f32BitsOf/f64BitsOf turn a decoded IR numeric literal's decimal text
// into the raw bit pattern codegen moves into a GPR before transferring
// it into an XMM register with movd/movq, matching the uniform "bitwise
// in rax/eax" expression contract.
func f32BitsOf(text string) uint32 {
	f, err := strconv.ParseFloat(text, 32)
	if err != nil {
		return 0
	}
	return math.Float32bits(float32(f))
}

func f64BitsOf(text string) uint64 {
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return math.Float64bits(f)
}
