package spice

//go:generate go run .. build --stage all ..
