package main

import "context"

func (cli *commandLine) resetPassword(schoolCode, login, pwd string) error {
	ctx := context.Background()
	var schoolID string
	if schoolCode != "" {
		sch, err := cli.schoolSvc.GetByCode(ctx, schoolCode)
		if err != nil {
			return err
		}
		schoolID = sch.ID
	}
	return cli.usrSvc.ResetPassword(ctx, schoolID, login, pwd)
}

// addSuperAdmin creates a platform super-admin, or resets the password of an existing one.
func (cli *commandLine) addSuperAdmin(name, uname, email, pwd string) error {
	usr, err := cli.usrSvc.CreateSuperAdmin(context.Background(), name, uname, email, pwd)
	if err != nil {
		return err
	}
	logger.Printf("super-admin %q (%s) ready", usr.Username, usr.ID)
	return nil
}
