package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/damaro/courier/internal/config"
	"github.com/damaro/courier/internal/web/db"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage tenant accounts",
}

var userConfigFile string

var userCreateCmd = &cobra.Command{
	Use:   "create <username> <password>",
	Short: "Create a tenant account",
	Args:  cobra.ExactArgs(2),
	RunE:  runUserCreate,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenant accounts",
	RunE:  runUserList,
}

func init() {
	userCmd.PersistentFlags().StringVarP(&userConfigFile, "config", "c", "/etc/courier/courier.yaml", "Path to configuration file")
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
}

func openUserDB() (*db.DB, error) {
	cfg, err := config.Load(userConfigFile)
	if err != nil {
		return nil, err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	username, password := args[0], args[1]

	database, err := openUserDB()
	if err != nil {
		return err
	}
	defer database.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if _, err := database.Exec(
		"INSERT INTO users (id, username, password_hash) VALUES (?, ?, ?)",
		uuid.NewString(), username, string(hash),
	); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("user %s created\n", username)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	database, err := openUserDB()
	if err != nil {
		return err
	}
	defer database.Close()

	rows, err := database.Query("SELECT username, created_at FROM users ORDER BY created_at")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var username, createdAt string
		if err := rows.Scan(&username, &createdAt); err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", username, createdAt)
	}
	return rows.Err()
}
