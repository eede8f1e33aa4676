package privilege

import (
	"github.com/dolthub/go-mysql-server/memory"
	"github.com/dolthub/go-mysql-server/sql"
	"github.com/dolthub/go-mysql-server/sql/types"
)

type grantColumn struct {
	column    string
	privilege string
}

// userPrivColumns are the Y/N columns of mysql.user in server order.
var userPrivColumns = []grantColumn{
	{"Select_priv", "SELECT"},
	{"Insert_priv", "INSERT"},
	{"Update_priv", "UPDATE"},
	{"Delete_priv", "DELETE"},
	{"Create_priv", "CREATE"},
	{"Drop_priv", "DROP"},
	{"Reload_priv", "RELOAD"},
	{"Shutdown_priv", "SHUTDOWN"},
	{"Process_priv", "PROCESS"},
	{"File_priv", "FILE"},
	{"Grant_priv", "GRANT OPTION"},
	{"References_priv", "REFERENCES"},
	{"Index_priv", "INDEX"},
	{"Alter_priv", "ALTER"},
	{"Show_db_priv", "SHOW DATABASES"},
	{"Super_priv", "SUPER"},
	{"Create_tmp_table_priv", "CREATE TEMPORARY TABLES"},
	{"Lock_tables_priv", "LOCK TABLES"},
	{"Execute_priv", "EXECUTE"},
	{"Repl_slave_priv", "REPLICATION SLAVE"},
	{"Repl_client_priv", "REPLICATION CLIENT"},
	{"Create_view_priv", "CREATE VIEW"},
	{"Show_view_priv", "SHOW VIEW"},
	{"Create_routine_priv", "CREATE ROUTINE"},
	{"Alter_routine_priv", "ALTER ROUTINE"},
	{"Create_user_priv", "CREATE USER"},
	{"Event_priv", "EVENT"},
	{"Trigger_priv", "TRIGGER"},
	{"Create_tablespace_priv", "CREATE TABLESPACE"},
}

// userAttrColumns follow the privilege columns in mysql.user.
var userAttrColumns = []string{
	"ssl_type", "ssl_cipher", "x509_issuer", "x509_subject",
	"max_questions", "max_updates", "max_connections", "max_user_connections",
	"plugin", "authentication_string", "password_expired", "password_last_changed",
	"password_lifetime", "account_locked",
}

// dbPrivColumns are the Y/N columns of mysql.db.
var dbPrivColumns = []grantColumn{
	{"Select_priv", "SELECT"},
	{"Insert_priv", "INSERT"},
	{"Update_priv", "UPDATE"},
	{"Delete_priv", "DELETE"},
	{"Create_priv", "CREATE"},
	{"Drop_priv", "DROP"},
	{"Grant_priv", "GRANT OPTION"},
	{"References_priv", "REFERENCES"},
	{"Index_priv", "INDEX"},
	{"Alter_priv", "ALTER"},
	{"Create_tmp_table_priv", "CREATE TEMPORARY TABLES"},
	{"Lock_tables_priv", "LOCK TABLES"},
	{"Create_view_priv", "CREATE VIEW"},
	{"Show_view_priv", "SHOW VIEW"},
	{"Create_routine_priv", "CREATE ROUTINE"},
	{"Alter_routine_priv", "ALTER ROUTINE"},
	{"Execute_priv", "EXECUTE"},
	{"Event_priv", "EVENT"},
	{"Trigger_priv", "TRIGGER"},
}

// createGrantTables adds mysql.user and mysql.db to db. Every column is TEXT
// so that seeded values round-trip exactly as a real server returns them.
func createGrantTables(db *memory.Database) {
	userCols := sql.Schema{
		{Name: "Host", Type: types.Text, Source: "user", Nullable: false, PrimaryKey: true},
		{Name: "User", Type: types.Text, Source: "user", Nullable: false, PrimaryKey: true},
	}
	for _, c := range userPrivColumns {
		userCols = append(userCols, &sql.Column{Name: c.column, Type: types.Text, Source: "user"})
	}
	for _, c := range userAttrColumns {
		userCols = append(userCols, &sql.Column{Name: c, Type: types.Text, Source: "user", Nullable: true})
	}
	db.AddTable("user", memory.NewTable(db, "user", sql.NewPrimaryKeySchema(userCols), db.GetForeignKeyCollection()))

	dbCols := sql.Schema{
		{Name: "Host", Type: types.Text, Source: "db", Nullable: false, PrimaryKey: true},
		{Name: "Db", Type: types.Text, Source: "db", Nullable: false, PrimaryKey: true},
		{Name: "User", Type: types.Text, Source: "db", Nullable: false, PrimaryKey: true},
	}
	for _, c := range dbPrivColumns {
		dbCols = append(dbCols, &sql.Column{Name: c.column, Type: types.Text, Source: "db"})
	}
	db.AddTable("db", memory.NewTable(db, "db", sql.NewPrimaryKeySchema(dbCols), db.GetForeignKeyCollection()))
}
