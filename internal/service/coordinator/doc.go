// Package coordinator combines the reports of the presence and detection
// monitors and raises an alert while nobody trusted is home and a person is
// in front of the camera.
package coordinator
