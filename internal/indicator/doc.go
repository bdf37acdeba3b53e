// Package indicator drives a GPIO status LED from location readings: the LED
// is lit while fixes keep arriving with good enough horizontal accuracy.
package indicator
