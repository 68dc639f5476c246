package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", db.Driver())
			return nil
		},
	}
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}

	var name, owner string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an organization and make the owner its first member",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			o, err := db.CreateOrganization(cmd.Context(), name, owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "organization %s (%s) created\n", o.ID, o.Name)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "organization name")
	create.Flags().StringVar(&owner, "owner", "", "user id of the owner")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("owner")

	var orgID, userID, role string
	addMember := &cobra.Command{
		Use:   "add-member",
		Short: "Add a user to an organization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.AddMember(cmd.Context(), orgID, userID, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s of %s\n", userID, role, orgID)
			return nil
		},
	}
	addMember.Flags().StringVar(&orgID, "org", "", "organization id")
	addMember.Flags().StringVar(&userID, "user", "", "user id")
	addMember.Flags().StringVar(&role, "role", "member", "member role")
	_ = addMember.MarkFlagRequired("org")
	_ = addMember.MarkFlagRequired("user")

	org.AddCommand(create, addMember)
	return org
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var orgID, userID, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key acting as a member of an organization",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			plain, key, err := db.CreateAPIKey(cmd.Context(), orgID, userID, name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key id: %s\n", key.ID)
			fmt.Fprintf(out, "api key: %s\n", plain)
			fmt.Fprintln(out, "Store it now; it cannot be shown again.")
			return nil
		},
	}
	create.Flags().StringVar(&orgID, "org", "", "organization id")
	create.Flags().StringVar(&userID, "user", "", "user id the key acts as")
	create.Flags().StringVar(&name, "name", "", "label for the key")
	_ = create.MarkFlagRequired("org")
	_ = create.MarkFlagRequired("user")
	keys.AddCommand(create)
	return keys
}
