// Package notifier delivers alerts to the people guarding the home.
//
// Every transport implements Dispatcher. Multi fans a notification out to
// several transports, Upload decorates one with image hosting.
package notifier
