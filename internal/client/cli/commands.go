package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophtvm/internal/client/client"
)

// getPassword is a test seam for the hidden password prompt.
var getPassword = GetPassword

func (a *App) readCredentials() (string, string, error) {
	userName, err := GetSimpleText(a.reader, "Enter user name", promptOut)
	if err != nil {
		return "", "", err
	}
	pw, err := getPassword(promptOut)
	if err != nil {
		return "", "", err
	}
	return userName, string(pw), nil
}

func (a *App) Register(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		printlnFn("error:", err)
		return err
	}

	if err := a.client.Register(ctx, userName, password); err != nil {
		if errors.Is(err, client.ErrConflict) {
			printlnFn("Registration refused: user name taken")
		} else {
			printlnFn("Registration failed:", err)
		}
		return err
	}

	printlnFn("Registered", userName)
	return nil
}

func (a *App) Login(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		printlnFn("error:", err)
		return err
	}

	key, err := a.client.Login(ctx, userName, password, a.uid)
	if err != nil {
		printlnFn("Login unsuccessful:", err)
		return err
	}

	a.userName = userName
	a.key = key
	printlnFn("Login successful, device key received")
	return nil
}

func (a *App) Token(ctx context.Context) error {
	if !a.isLoggedIn() {
		printlnFn("Not logged in")
		return client.ErrUnauthorized
	}

	tok, err := a.client.GetToken(ctx, a.uid, a.key)
	if err != nil {
		printlnFn("Token request failed:", err)
		return err
	}

	printlnFn("AccessKeyId:    ", tok.AccessKey)
	printlnFn("SecretAccessKey:", tok.SecretKey)
	printlnFn("SessionToken:   ", tok.SecurityToken)
	printlnFn("Expiration:     ", tok.Expiration.Format(time.RFC3339))
	return nil
}

func (a *App) Logout(context.Context) error {
	a.userName = ""
	a.key = ""
	printlnFn("Logged out")
	return nil
}

func (a *App) Status(context.Context) error {
	if a.isLoggedIn() {
		printlnFn(fmt.Sprintf("device %s bound to %s", a.uid, a.userName))
	} else {
		printlnFn(fmt.Sprintf("device %s, not logged in", a.uid))
	}
	return nil
}
