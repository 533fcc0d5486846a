// Package presence implements probes that look for trusted devices on the
// local network: an arp-scan sweep, per-device pings and a scrape of the
// router admin panel.
//
// Every probe shares a Devices list, so the trusted devices can be replaced
// while the presence monitor is running.
package presence
