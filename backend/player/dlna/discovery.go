package dlna

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/huin/goupnp"
	"github.com/huin/goupnp/dcps/av1"
	log "github.com/sirupsen/logrus"
)

var ErrNoDevice = errors.New("no matching media renderer found")

// MediaRendererDevice represents a discovered DLNA Media Renderer device
type MediaRendererDevice struct {
	FriendlyName string
	URL          string // Device description URL
	ModelName    string
	rootDevice   *goupnp.RootDevice
	location     *url.URL
}

// DiscoverMediaRenderers discovers DLNA Media Renderer devices on the network,
// searching for both AVTransport1 and AVTransport2 services.
func DiscoverMediaRenderers(ctx context.Context, waitSec int) ([]*MediaRendererDevice, error) {
	log.Debugf("[DLNA Discovery] Starting media renderer discovery (timeout: %ds)", waitSec)

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(waitSec)*time.Second)
	defer cancel()

	var allDevices []*MediaRendererDevice
	seen := make(map[string]bool) // Deduplicate by URL
	add := func(root *goupnp.RootDevice, loc *url.URL) {
		if root == nil || seen[loc.String()] {
			return
		}
		seen[loc.String()] = true
		renderer := &MediaRendererDevice{
			FriendlyName: root.Device.FriendlyName,
			URL:          loc.String(),
			ModelName:    root.Device.ModelName,
			rootDevice:   root,
			location:     loc,
		}
		allDevices = append(allDevices, renderer)
		log.Debugf("[DLNA Discovery] Found device: %s (Model: %s, URL: %s)",
			renderer.FriendlyName, renderer.ModelName, renderer.URL)
	}

	av1Clients, errors1, err1 := av1.NewAVTransport1ClientsCtx(timeoutCtx)
	if err1 != nil {
		log.Warnf("[DLNA Discovery] Error discovering AVTransport1 devices: %v", err1)
	}
	logDeviceErrors("AVTransport1", errors1)
	for _, client := range av1Clients {
		add(client.RootDevice, client.Location)
	}

	av2Clients, errors2, err2 := av1.NewAVTransport2ClientsCtx(timeoutCtx)
	if err2 != nil {
		log.Warnf("[DLNA Discovery] Error discovering AVTransport2 devices: %v", err2)
	}
	logDeviceErrors("AVTransport2", errors2)
	for _, client := range av2Clients {
		add(client.RootDevice, client.Location)
	}

	if err1 != nil && err2 != nil {
		return nil, fmt.Errorf("media renderer discovery failed: %w", err1)
	}
	log.Debugf("[DLNA Discovery] Discovery complete. Found %d unique device(s)", len(allDevices))
	return allDevices, nil
}

// FindMediaRenderer discovers renderers and returns the first whose
// friendly name matches name (case-insensitively).
func FindMediaRenderer(ctx context.Context, name string, waitSec int) (*MediaRendererDevice, error) {
	devices, err := DiscoverMediaRenderers(ctx, waitSec)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if strings.EqualFold(d.FriendlyName, name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoDevice, name)
}

func logDeviceErrors(service string, errs []error) {
	for _, devErr := range errs {
		if devErr != nil {
			log.Debugf("[DLNA Discovery] Device error (%s): %v", service, devErr)
		}
	}
}

// NewAVTransportClient creates an AVTransport client for this device
// Tries AVTransport2 first, then falls back to AVTransport1
func (d *MediaRendererDevice) NewAVTransportClient() (*av1.AVTransport1, error) {
	clients2, err := av1.NewAVTransport2ClientsFromRootDevice(d.rootDevice, d.location)
	if err == nil && len(clients2) > 0 {
		// AVTransport2 is a superset of the AVTransport1 actions we use
		return &av1.AVTransport1{ServiceClient: clients2[0].ServiceClient}, nil
	}

	clients1, err := av1.NewAVTransport1ClientsFromRootDevice(d.rootDevice, d.location)
	if err != nil {
		return nil, err
	}
	if len(clients1) == 0 {
		return nil, fmt.Errorf("no AVTransport service found for device %s", d.FriendlyName)
	}
	return clients1[0], nil
}
