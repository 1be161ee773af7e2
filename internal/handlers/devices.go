package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/lunadev/shellmux/internal/config"
	"github.com/lunadev/shellmux/internal/database"
	"github.com/lunadev/shellmux/internal/emulator"
	"github.com/lunadev/shellmux/internal/registry"
	"github.com/lunadev/shellmux/internal/shell"
	"github.com/lunadev/shellmux/internal/sshchannel"
	"github.com/lunadev/shellmux/internal/sshmanager"
)

// Package-level collaborators, set from main.go during init.
var (
	SSHMgr *sshmanager.Manager
	Shells *registry.Registry

	streams = newStreamTable()
)

// ListDevices returns the device inventory.
func ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := database.ListDevices()
	if err != nil {
		log.Printf("[handlers] list devices: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
}

type createDeviceRequest struct {
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	KeyPath     string `json:"key_path"`
	Password    string `json:"password"`
	Description string `json:"description"`
}

// CreateDevice adds a device to the inventory.
func CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" || req.Host == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "name, host and username are required")
		return
	}
	if req.Port == 0 {
		req.Port = 22
	}

	d := database.Device{
		Name:        req.Name,
		Host:        req.Host,
		Port:        req.Port,
		Username:    req.Username,
		KeyPath:     req.KeyPath,
		Password:    req.Password,
		Description: req.Description,
	}
	if err := database.CreateDevice(&d); err != nil {
		log.Printf("[handlers] create device: %v", err)
		writeError(w, http.StatusConflict, "Failed to create device")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// DeleteDevice removes a device and closes its SSH connection, if any.
func DeleteDevice(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid device ID")
		return
	}

	if err := database.DeleteDevice(id); err != nil {
		if errors.Is(err, database.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "Device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete device")
		return
	}

	if err := SSHMgr.Close(id); err != nil {
		log.Printf("[handlers] close connection for deleted device %s: %v", id, err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type openShellRequest struct {
	// NoPTY opens a pipe-backed session without terminal emulation.
	NoPTY   bool   `json:"no_pty"`
	Cols    int    `json:"cols"`
	Rows    int    `json:"rows"`
	Command string `json:"command"`
}

// OpenShell opens a new shell session on a device: it ensures an SSH
// connection, opens a channel, registers the session actor, and starts its
// protocol loop. The response carries the session token the caller uses on
// all further shell endpoints.
func OpenShell(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid device ID")
		return
	}

	device, err := database.GetDevice(id)
	if err != nil {
		if errors.Is(err, database.ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "Device not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load device")
		return
	}

	var req openShellRequest
	if r.Body != nil {
		// An empty body opens a default PTY shell.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	cols := req.Cols
	if cols <= 0 {
		cols = config.Cfg.ShellDefaultCols
	}
	rows := req.Rows
	if rows <= 0 {
		rows = config.Cfg.ShellDefaultRows
	}

	client, err := ensureConnected(r, device)
	if err != nil {
		log.Printf("[handlers] connect to device %s: %v", device.ID, err)
		writeError(w, http.StatusBadGateway, "Failed to establish SSH connection")
		return
	}

	hasPTY := !req.NoPTY
	channel, err := sshchannel.Open(client, sshchannel.OpenOptions{
		PTY:     hasPTY,
		Cols:    cols,
		Rows:    rows,
		Command: req.Command,
	})
	if err != nil {
		log.Printf("[handlers] open channel on device %s: %v", device.ID, err)
		writeError(w, http.StatusBadGateway, "Failed to open shell channel")
		return
	}

	token := shell.Token{ConnectionID: device.ID, ChannelID: uuid.New().String()}
	cfg := shell.Config{
		HasPTY:       hasPTY,
		DefaultTitle: config.Cfg.ShellDefaultTitle,
	}
	if hasPTY {
		cfg.Emulator = emulator.New(cols, rows)
	}
	sh := shell.New(token, channel, cfg)

	sink := newStreamSink()
	done := Shells.Start(sh, sink)
	streams.put(token, &streamEntry{sink: sink, done: done})

	writeJSON(w, http.StatusCreated, sh.Info())
}

// ensureConnected returns the device's SSH connection, establishing it with
// the device's configured credentials when none is alive.
func ensureConnected(r *http.Request, device *database.Device) (*ssh.Client, error) {
	if SSHMgr.IsConnected(device.ID) {
		if client, ok := SSHMgr.GetConnection(device.ID); ok {
			return client, nil
		}
	}

	auth, err := deviceAuth(device)
	if err != nil {
		return nil, err
	}
	return SSHMgr.Connect(r.Context(), device.ID, device.Host, device.Port, device.Username, auth)
}

// deviceAuth builds the SSH auth methods from the device record: a private
// key file when configured, plus a password when present.
func deviceAuth(device *database.Device) ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod
	if device.KeyPath != "" {
		pem, err := os.ReadFile(device.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", device.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse key %s: %w", device.KeyPath, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if device.Password != "" {
		auth = append(auth, ssh.Password(device.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("device %s has no credentials configured", device.Name)
	}
	return auth, nil
}
