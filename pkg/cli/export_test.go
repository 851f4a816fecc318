package cli

var ListenURL = listenURL
