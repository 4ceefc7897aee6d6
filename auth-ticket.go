package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

func saveAuthTicket(path string, organizationCode string, token string) error {
	ticket := AuthTicket{
		Token:            token,
		OrganizationCode: organizationCode,
		IssuedAt:         time.Now().UTC(),
	}

	fileContent, err := json.MarshalIndent(ticket, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize authentication data: %w", err)
	}
	err = os.WriteFile(path, fileContent, 0600)
	if err != nil {
		return fmt.Errorf("failed to save authentication data to file '%s': %w", path, err)
	}
	return nil
}

func loadAuthTicket(path string, organizationCode string) (AuthTicket, error) {
	var authTicket = AuthTicket{}

	file, err := os.Open(path)
	if err != nil {
		return authTicket, fmt.Errorf("failed to read authentication ticket file, run 'login' first: %w", err)
	}
	defer file.Close()

	err = json.NewDecoder(file).Decode(&authTicket)
	if err != nil {
		return authTicket, fmt.Errorf("failed to deserialize authentication data: %w", err)
	}
	if authTicket.OrganizationCode != organizationCode {
		return authTicket, fmt.Errorf("authentication ticket was issued for organization '%s', not '%s'", authTicket.OrganizationCode, organizationCode)
	}
	return authTicket, nil
}

func removeAuthTicket(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
