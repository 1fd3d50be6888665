// Command camliup queues local files for upload to a content-addressable
// blob server.
//
// "camliup daemon" runs the uploader in the foreground. Other commands talk to
// it over the Unix socket in the data directory: add, pause, resume, stop,
// status, queue and logs. "camliup hash" and "camliup upload" work without a
// daemon.
package main
