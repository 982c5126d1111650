package expr

import (
	"fmt"
	"math"
	"strconv"
)

// functions is the complete set of callable functions.
var functions = map[string]func([]interface{}) (interface{}, error){
	"min":   numericFold(math.Min),
	"max":   numericFold(math.Max),
	"ceil":  numericUnary(math.Ceil),
	"floor": numericUnary(math.Floor),
	"abs":   numericUnary(math.Abs),
	"round": numericUnary(math.Round),
	"int":   numericUnary(math.Trunc),
	"float": numericUnary(func(f float64) float64 { return f }),
	"str":   str,
}

func numbers(args []interface{}) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		switch x := a.(type) {
		case float64:
			out[i] = x
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d is not a number", i)
			}
			out[i] = f
		default:
			return nil, fmt.Errorf("argument %d is not a number", i)
		}
	}
	return out, nil
}

func numericFold(fn func(a, b float64) float64) func([]interface{}) (interface{}, error) {
	return func(args []interface{}) (interface{}, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("expected at least one argument")
		}
		nums, err := numbers(args)
		if err != nil {
			return nil, err
		}
		acc := nums[0]
		for _, n := range nums[1:] {
			acc = fn(acc, n)
		}
		return acc, nil
	}
}

func numericUnary(fn func(float64) float64) func([]interface{}) (interface{}, error) {
	return func(args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected one argument, got %d", len(args))
		}
		nums, err := numbers(args)
		if err != nil {
			return nil, err
		}
		return fn(nums[0]), nil
	}
}

func str(args []interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("expected one argument, got %d", len(args))
	}
	return format(args[0]), nil
}
