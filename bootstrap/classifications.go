package bootstrap

import (
	"fmt"

	"dbaccountsync/models"
	"dbaccountsync/pkg/logger"
	"dbaccountsync/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type defaultRule struct {
	name, dbType, expression string
}

type defaultClassification struct {
	models.AccountClassification
	rules []defaultRule
}

var defaultClassifications = []defaultClassification{
	{
		AccountClassification: models.AccountClassification{
			Name: "privileged", Description: "Accounts with administrative control of the server",
			RiskLevel: "critical", Color: "#d32f2f", Priority: 100,
		},
		rules: []defaultRule{
			{"mysql super", models.DBTypeMySQL, `{"type":"mysql_permissions","operator":"OR","global_privileges":["SUPER","ALL PRIVILEGES"]}`},
			{"postgresql superuser", models.DBTypePostgreSQL, `{"type":"postgresql_permissions","role_attributes":["SUPERUSER"]}`},
			{"sqlserver sysadmin", models.DBTypeSQLServer, `{"type":"sqlserver_permissions","operator":"OR","server_roles":["sysadmin"],"server_permissions":["CONTROL SERVER"]}`},
			{"oracle dba", models.DBTypeOracle, `{"type":"oracle_permissions","roles":["DBA"]}`},
		},
	},
	{
		AccountClassification: models.AccountClassification{
			Name: "high_risk", Description: "Accounts able to manage users or grant privileges",
			RiskLevel: "high", Color: "#f57c00", Priority: 50,
		},
		rules: []defaultRule{
			{"mysql grant or create user", models.DBTypeMySQL, `{"type":"mysql_permissions","operator":"OR","global_privileges":["GRANT OPTION","CREATE USER"]}`},
			{"postgresql createrole", models.DBTypePostgreSQL, `{"type":"postgresql_permissions","role_attributes":["CREATEROLE"]}`},
			{"sqlserver securityadmin", models.DBTypeSQLServer, `{"type":"sqlserver_permissions","operator":"OR","server_roles":["securityadmin"],"server_permissions":["ALTER ANY LOGIN"]}`},
			{"oracle grant any privilege", models.DBTypeOracle, `{"type":"oracle_permissions","system_privileges":["GRANT ANY PRIVILEGE"]}`},
		},
	},
	{
		AccountClassification: models.AccountClassification{
			Name: "read_only", Description: "Accounts that can read but not modify data",
			RiskLevel: "low", Color: "#388e3c", Priority: 10,
		},
		rules: []defaultRule{
			{"mysql select only", models.DBTypeMySQL, `{"type":"mysql_permissions","global_privileges":["SELECT"],"exclude_privileges":["INSERT","UPDATE","DELETE","DROP","ALTER","SUPER","ALL PRIVILEGES"]}`},
			{"sqlserver datareader", models.DBTypeSQLServer, `{"type":"sqlserver_permissions","server_permissions":["VIEW ANY DATABASE"]}`},
		},
	},
}

// seedClassifications creates the system classifications and their rules when
// no classification exists yet.
func seedClassifications(db *gorm.DB, repo repository.ClassificationRepository) error {
	n, err := repo.Count(nil)
	if err != nil {
		return fmt.Errorf("failed to count classifications: %w", err)
	}
	if n > 0 {
		return nil
	}

	tx := db.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	rules := 0
	for _, dc := range defaultClassifications {
		c := dc.AccountClassification
		c.IsSystem = true
		c.IsActive = true
		if err := repo.Create(tx, &c); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create classification %s: %w", c.Name, err)
		}
		for _, r := range dc.rules {
			rule := &models.ClassificationRule{
				ClassificationID: c.ID,
				RuleName:         r.name,
				DBType:           r.dbType,
				RuleExpression:   datatypes.JSON(r.expression),
				IsActive:         true,
			}
			if err := repo.CreateRule(tx, rule); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to create rule %s: %w", r.name, err)
			}
			rules++
		}
	}
	if err := tx.Commit().Error; err != nil {
		return err
	}
	logger.Infof("Seeded %d default classifications with %d rules", len(defaultClassifications), rules)
	return nil
}
