// Package virtualbus manages USB bus topology and auto-assigns device addresses.
package virtualbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/9names/xrecv/usb"
	"github.com/9names/xrecv/usbip"
)

const basepath = "/sys/devices/pci0000:00/0000:00:08.1/0000:00:04:00.3/usb"

var (
	globalBusCounter uint32
	allocatedBusIds  = make(map[uint32]bool)
	globalMutex      sync.Mutex
)

// VirtualBus tracks the devices exported on one USB/IP bus number.
type VirtualBus struct {
	mutex           sync.Mutex
	busId           uint32
	allocatedDevIDs map[uint32]bool
	devices         []busDevice
}

type busDevice struct {
	dev    usb.Device
	meta   usbip.ExportMeta
	ctx    context.Context
	cancel context.CancelFunc
}

// DeviceMeta exposes a registered device and its metadata for external queries.
type DeviceMeta struct {
	Dev  usb.Device
	Meta usbip.ExportMeta
}

// New creates a new VirtualBus with a unique auto-assigned bus number.
func New() *VirtualBus {
	globalMutex.Lock()
	defer globalMutex.Unlock()

	busId := globalBusCounter
	if busId == 0 {
		busId = 1
	}
	globalBusCounter = busId + 1
	allocatedBusIds[busId] = true

	return &VirtualBus{
		busId:           busId,
		allocatedDevIDs: make(map[uint32]bool),
	}
}

// Add registers a device on the bus and returns a context that is cancelled
// when the device is removed or the bus closed.
func (vb *VirtualBus) Add(dev usb.Device) (context.Context, error) {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	for _, d := range vb.devices {
		if d.dev == dev {
			return nil, fmt.Errorf("device already registered on this bus")
		}
	}
	var devID uint32
	for i := uint32(1); ; i++ {
		if !vb.allocatedDevIDs[i] {
			devID = i
			vb.allocatedDevIDs[i] = true
			break
		}
	}

	busDevID := fmt.Sprintf("%d-%d", vb.busId, devID)
	path := fmt.Sprintf("%s%d/%s", basepath, vb.busId, busDevID)

	var meta usbip.ExportMeta
	copy(meta.Path[:], path)
	copy(meta.USBBusId[:], busDevID)
	meta.BusId = vb.busId
	meta.DevId = devID

	ctx, cancel := context.WithCancel(context.Background())
	vb.devices = append(vb.devices, busDevice{dev: dev, meta: meta, ctx: ctx, cancel: cancel})
	return ctx, nil
}

// GetAllDeviceMetas returns a copy of all registered devices with their
// export metadata.
func (vb *VirtualBus) GetAllDeviceMetas() []DeviceMeta {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	out := make([]DeviceMeta, 0, len(vb.devices))
	for _, d := range vb.devices {
		out = append(out, DeviceMeta{Dev: d.dev, Meta: d.meta})
	}
	return out
}

// BusID returns the bus number for this VirtualBus.
func (vb *VirtualBus) BusID() uint32 {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	return vb.busId
}

// Devices returns all devices currently attached to this bus.
func (vb *VirtualBus) Devices() []usb.Device {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	out := make([]usb.Device, 0, len(vb.devices))
	for _, d := range vb.devices {
		out = append(out, d.dev)
	}
	return out
}

// GetDeviceContext returns the lifecycle context for a device, or nil if the
// device is not registered.
func (vb *VirtualBus) GetDeviceContext(dev usb.Device) context.Context {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for i := range vb.devices {
		if vb.devices[i].dev == dev {
			return vb.devices[i].ctx
		}
	}
	return nil
}

// Remove unregisters a device from the bus and cancels its context.
func (vb *VirtualBus) Remove(dev usb.Device) error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for i, d := range vb.devices {
		if d.dev == dev {
			if d.cancel != nil {
				d.cancel()
			}
			delete(vb.allocatedDevIDs, d.meta.DevId)
			vb.devices = append(vb.devices[:i], vb.devices[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("device not found")
}

// Close cancels all device contexts and frees the bus number for reuse.
// The VirtualBus must not be used afterwards.
func (vb *VirtualBus) Close() error {
	vb.mutex.Lock()
	for i := range vb.devices {
		if vb.devices[i].cancel != nil {
			vb.devices[i].cancel()
		}
	}
	vb.devices = nil
	vb.mutex.Unlock()

	globalMutex.Lock()
	defer globalMutex.Unlock()
	delete(allocatedBusIds, vb.busId)
	return nil
}
