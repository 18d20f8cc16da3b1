// Package controller runs the controller role: one relay channel, one
// motion engine, and the tickers the engine asks for, all driven by a single
// event loop. Pointer input and settings arrive through an HTTP API and are
// handed to the loop as requests.
package controller
