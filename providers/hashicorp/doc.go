// Package hashicorp keeps the medcrypt master key in a HashiCorp Vault KV v2
// secrets engine.
//
// The key is stored base64 encoded under
//
//	secret/data/medcrypt/{alias}/master-key
//
// and read once at start-up; medcrypt never writes it to disk.
//
// # Setup
//
//	vault secrets enable -path=secret kv-v2
//
// The token or AppRole needs:
//
//	path "secret/data/medcrypt/*" {
//	  capabilities = ["create", "read", "update"]
//	}
//
// # Authentication
//
// ClientConfigFromEnvironment reads VAULT_ADDR, VAULT_NAMESPACE, VAULT_TOKEN,
// VAULT_ROLE_ID and VAULT_SECRET_ID. A token wins over AppRole credentials.
//
// # Usage
//
//	client, err := hashicorp.NewClient(ctx, hashicorp.ClientConfigFromEnvironment())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	kv := hashicorp.NewKVStore(client)
//	key, err := kv.EnsureMasterKey(ctx, "clinic-a")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.MasterKey = key
package hashicorp
