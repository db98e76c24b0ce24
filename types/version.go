package types

// Version is the canonical project version, shared by panelrund, panelctl,
// and panel-worker so their --version output always agrees.
const Version = "0.1.0"
