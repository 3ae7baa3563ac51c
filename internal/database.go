package internal

import (
	"fmt"

	"HC-ADMS/internal/config"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB(cfg *config.Config) error {
	dsn := cfg.Database.DSN()

	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := autoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	fmt.Println("Database connected and migrated successfully")
	return nil
}

func autoMigrate() error {
	// Create tables only if they don't exist (preserve existing data)
	fmt.Println("Ensuring agreement_templates table exists...")
	result := DB.Exec(`
        CREATE TABLE IF NOT EXISTS agreement_templates (
            id varchar(191) PRIMARY KEY,
            family_id varchar(191) NOT NULL,
            version int NOT NULL,
            title longtext NOT NULL,
            sections json,
            signature_requirements json,
            external_template_id longtext,
            created_at datetime(3) NULL,
            updated_at datetime(3) NULL,
            deleted_at datetime(3) NULL,
            INDEX idx_agreement_templates_family_id (family_id),
            INDEX idx_agreement_templates_deleted_at (deleted_at)
        )
    `)
	if result.Error != nil {
		return fmt.Errorf("failed to create agreement_templates table: %w", result.Error)
	}

	ensureTemplateColumns := map[string]string{
		"family_id":              "ALTER TABLE agreement_templates ADD COLUMN family_id varchar(191)",
		"version":                "ALTER TABLE agreement_templates ADD COLUMN version int",
		"title":                  "ALTER TABLE agreement_templates ADD COLUMN title longtext",
		"sections":               "ALTER TABLE agreement_templates ADD COLUMN sections json",
		"signature_requirements": "ALTER TABLE agreement_templates ADD COLUMN signature_requirements json",
		"external_template_id":   "ALTER TABLE agreement_templates ADD COLUMN external_template_id longtext",
	}

	for column, stmt := range ensureTemplateColumns {
		if err := ensureColumn("agreement_templates", column, stmt); err != nil {
			return err
		}
	}

	fmt.Println("Creating agreements table if not exists...")
	result = DB.Exec(`
        CREATE TABLE IF NOT EXISTS agreements (
            id varchar(191) PRIMARY KEY,
            resident_id varchar(191) NOT NULL,
            template_id varchar(191) NOT NULL,
            template_version int NOT NULL,
            title longtext,
            requirements json,
            sections json,
            status varchar(32) DEFAULT 'draft',
            notes longtext,
            expires_at datetime(3) NULL,
            external_document_id varchar(191) NULL,
            external_status varchar(64),
            archive_pdf_path longtext,
            created_at datetime(3) NULL,
            updated_at datetime(3) NULL,
            deleted_at datetime(3) NULL,
            INDEX idx_agreements_resident_id (resident_id),
            INDEX idx_agreements_template_id (template_id),
            INDEX idx_agreements_status (status),
            INDEX idx_agreements_external_document_id (external_document_id),
            INDEX idx_agreements_deleted_at (deleted_at)
        )
    `)
	if result.Error != nil {
		return fmt.Errorf("failed to create agreements table: %w", result.Error)
	}

	ensureAgreementColumns := map[string]string{
		"template_version":     "ALTER TABLE agreements ADD COLUMN template_version int",
		"title":                "ALTER TABLE agreements ADD COLUMN title longtext",
		"requirements":         "ALTER TABLE agreements ADD COLUMN requirements json",
		"sections":             "ALTER TABLE agreements ADD COLUMN sections json",
		"notes":                "ALTER TABLE agreements ADD COLUMN notes longtext",
		"expires_at":           "ALTER TABLE agreements ADD COLUMN expires_at datetime(3) NULL",
		"external_document_id": "ALTER TABLE agreements ADD COLUMN external_document_id varchar(191) NULL",
		"external_status":      "ALTER TABLE agreements ADD COLUMN external_status varchar(64)",
		"archive_pdf_path":     "ALTER TABLE agreements ADD COLUMN archive_pdf_path longtext",
	}

	for column, stmt := range ensureAgreementColumns {
		if err := ensureColumn("agreements", column, stmt); err != nil {
			return err
		}
	}

	fmt.Println("Creating signatures table if not exists...")
	result = DB.Exec(`
        CREATE TABLE IF NOT EXISTS signatures (
            id varchar(191) PRIMARY KEY,
            agreement_id varchar(191) NOT NULL,
            signer_role varchar(64) NOT NULL,
            signer_name longtext NOT NULL,
            signer_contact_ref varchar(191),
            image_path longtext,
            method varchar(16) NOT NULL,
            superseded boolean DEFAULT false,
            signed_at datetime(3) NULL,
            created_at datetime(3) NULL,
            updated_at datetime(3) NULL,
            deleted_at datetime(3) NULL,
            INDEX idx_signatures_agreement_id (agreement_id),
            INDEX idx_signatures_superseded (superseded),
            INDEX idx_signatures_deleted_at (deleted_at)
        )
    `)
	if result.Error != nil {
		return fmt.Errorf("failed to create signatures table: %w", result.Error)
	}

	ensureSignatureColumns := map[string]string{
		"signer_contact_ref": "ALTER TABLE signatures ADD COLUMN signer_contact_ref varchar(191)",
		"image_path":         "ALTER TABLE signatures ADD COLUMN image_path longtext",
		"superseded":         "ALTER TABLE signatures ADD COLUMN superseded boolean DEFAULT false",
		"signed_at":          "ALTER TABLE signatures ADD COLUMN signed_at datetime(3) NULL",
	}

	for column, stmt := range ensureSignatureColumns {
		if err := ensureColumn("signatures", column, stmt); err != nil {
			return err
		}
	}

	fmt.Println("Creating activity_logs table if not exists...")
	result = DB.Exec(`
        CREATE TABLE IF NOT EXISTS activity_logs (
            id varchar(36) PRIMARY KEY,
            method varchar(10) NOT NULL,
            path varchar(255) NOT NULL,
            agreement_id varchar(36),
            user_agent text,
            ip_address varchar(45),
            request_body text,
            status_code int NOT NULL,
            response_time bigint NOT NULL,
            created_at datetime(3) NULL,
            updated_at datetime(3) NULL,
            deleted_at datetime(3) NULL,
            INDEX idx_activity_logs_agreement_id (agreement_id),
            INDEX idx_activity_logs_deleted_at (deleted_at),
            INDEX idx_activity_logs_method (method),
            INDEX idx_activity_logs_path (path),
            INDEX idx_activity_logs_created_at (created_at)
        )
    `)
	if result.Error != nil {
		return fmt.Errorf("failed to create activity_logs table: %w", result.Error)
	}

	if err := ensureColumn("activity_logs", "agreement_id",
		"ALTER TABLE activity_logs ADD COLUMN agreement_id varchar(36)"); err != nil {
		return err
	}

	fmt.Println("Tables created/verified successfully")
	return nil
}

func ensureColumn(table, column, statement string) error {
	if DB.Migrator().HasColumn(table, column) {
		return nil
	}

	fmt.Printf("Adding missing column %s.%s...\n", table, column)
	if err := DB.Exec(statement).Error; err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}

	return nil
}

func CloseDB() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
