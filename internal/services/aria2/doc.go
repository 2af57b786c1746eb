// Package aria2 is a thin JSON-RPC client for the aria2 download daemon.
// It covers only the methods the download manager drives: queueing,
// status polling, pause and removal, and the diagnostic queries used when a
// transfer stalls.
package aria2
